package ragsearch

// ControllerV1 ragsearch v1 接口控制器
type ControllerV1 struct{}

// NewV1 创建v1控制器实例
func NewV1() *ControllerV1 {
	return &ControllerV1{}
}
