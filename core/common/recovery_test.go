package common

import (
	"context"
	"sync"
	"testing"
)

func TestSafeGoNormalExecution(t *testing.T) {
	ctx := context.Background()
	var wg sync.WaitGroup
	executed := false

	wg.Add(1)
	SafeGo(ctx, "normal-task", func() {
		defer wg.Done()
		executed = true
	})
	wg.Wait()

	if !executed {
		t.Error("Expected function to be executed")
	}
}

func TestSafeGoRecoversPanic(t *testing.T) {
	ctx := context.Background()
	var wg sync.WaitGroup

	wg.Add(1)
	SafeGo(ctx, "panicking-task", func() {
		defer wg.Done()
		panic("test panic")
	})
	// panic被捕获，Wait正常返回且测试进程不崩溃
	wg.Wait()
}

func TestRecoverPanicDirectly(t *testing.T) {
	ctx := context.Background()

	func() {
		defer RecoverPanic(ctx, "direct-task")
		panic("direct panic")
	}()
	// 执行到这里说明panic已被恢复
}
