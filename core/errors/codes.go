package errors

// ErrCode 业务错误码类型
type ErrCode int

const (
	// 通用错误 1000-1999
	ErrInvalidInput    ErrCode = 1001 // 输入无效（空文本、空ID、非法top_k等）
	ErrUnauthorized    ErrCode = 1002 // 未授权
	ErrInternalError   ErrCode = 1003 // 内部错误
	ErrNotFound        ErrCode = 1004 // 资源未找到
	ErrOperationFailed ErrCode = 1005 // 操作失败

	// Embedding相关 2000-2999
	ErrEncodingFailed     ErrCode = 2001 // 向量化失败（embedding后端错误）
	ErrDimensionMismatch  ErrCode = 2002 // 向量维度与索引配置不一致
	ErrModelNotConfigured ErrCode = 2003 // embedding模型未配置

	// 向量索引相关 5000-5999
	ErrIndexInit          ErrCode = 5001 // 索引初始化失败
	ErrVectorSearch       ErrCode = 5002 // 向量搜索失败
	ErrVectorUpsert       ErrCode = 5003 // 向量写入失败
	ErrConfigMismatch     ErrCode = 5004 // 已有索引配置与期望配置冲突
	ErrBackendUnavailable ErrCode = 5005 // 索引后端不可用（重试耗尽）
	ErrIndexNotFound      ErrCode = 5006 // 索引不存在
)

// Name 返回错误码的稳定名称，用于入库结果中的拒绝原因
func (e ErrCode) Name() string {
	switch e {
	case ErrInvalidInput:
		return "InvalidInputError"
	case ErrEncodingFailed:
		return "EncodingError"
	case ErrDimensionMismatch:
		return "DimensionMismatchError"
	case ErrConfigMismatch:
		return "ConfigMismatchError"
	case ErrBackendUnavailable:
		return "BackendUnavailableError"
	default:
		return "InternalError"
	}
}

// HTTPStatusCode 返回错误码对应的HTTP状态码
func (e ErrCode) HTTPStatusCode() int {
	switch {
	case e >= 1001 && e <= 1999:
		// 通用错误
		switch e {
		case ErrInvalidInput:
			return 400
		case ErrUnauthorized:
			return 401
		case ErrNotFound:
			return 404
		default:
			return 500
		}
	case e >= 2000 && e <= 2999:
		// Embedding相关错误
		if e == ErrDimensionMismatch {
			return 422
		}
		return 502
	case e >= 5000 && e <= 5999:
		// 向量索引相关错误
		switch e {
		case ErrIndexNotFound:
			return 404
		case ErrConfigMismatch:
			return 409
		case ErrBackendUnavailable:
			return 503
		default:
			return 500
		}
	default:
		return 500
	}
}

// Retryable 判断该错误码是否允许调用方重试
// 配置类错误（维度/配置冲突、鉴权失败）永远不可重试
func (e ErrCode) Retryable() bool {
	return e == ErrBackendUnavailable
}
