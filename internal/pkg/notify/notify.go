package notify

import "context"

// Notifier 定义外发通知通道。
type Notifier interface {
	// Send 向指定 chat 投递一条消息。单次尝试，不重试。
	Send(ctx context.Context, chatID int64, text string) error
}

// ChatResolver 解析用户绑定的消息身份。
type ChatResolver interface {
	// TelegramChatID 返回用户的 chat id；第二个返回值表示是否存在绑定。
	TelegramChatID(ctx context.Context, userID uint) (int64, bool, error)
}

// Dispatcher 是请求路径看到的派发入口。
//
// Dispatch 必须立即返回；投递结果对调用方不可见，失败只进日志。
type Dispatcher interface {
	Dispatch(userID uint, text string)
}

// NopDispatcher 丢弃所有事件，用于未配置投递通道的场景与测试。
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(userID uint, text string) {}
