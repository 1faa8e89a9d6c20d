package interceptor

// Loader supplies the interceptors of the send and consume chains. It is handed to the controller at
// construction; nil lists mean empty chains.
type Loader interface {
	LoadSendInterceptors() []Interceptor
	LoadConsumeInterceptors() []Interceptor
}

type StaticLoader struct {
	Send    []Interceptor
	Consume []Interceptor
}

func (l StaticLoader) LoadSendInterceptors() []Interceptor {
	return l.Send
}

func (l StaticLoader) LoadConsumeInterceptors() []Interceptor {
	return l.Consume
}
