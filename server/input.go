package server

// Hub 事件循环的入站事件：连接打开、收到一帧、连接关闭
// 全部经由同一个通道串行处理，同一连接的事件保持到达顺序

type openEvent struct {
	session *Session
}

type messageEvent struct {
	id      SessionID
	payload []byte
}

type closeEvent struct {
	id SessionID
}

// callEvent 在事件循环内执行 fn（读取会话表等只属于循环的状态）
type callEvent struct {
	fn   func()
	done chan struct{}
}
