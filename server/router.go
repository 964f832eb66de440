package server

import (
	"errors"

	"live-relay/client"
	"live-relay/handler"
	"live-relay/hub"
	"live-relay/model"
	"live-relay/protocol"
	"live-relay/utils"

	"github.com/sirupsen/logrus"
)

// 测试命令未指定 from 时使用
const defaultTestUser = "test"

// Router 把订阅者命令映射到会话管理器和广播
type Router struct {
	manager *client.Manager
	hub     *hub.Hub
	log     *logrus.Entry
}

func NewRouter(manager *client.Manager, h *hub.Hub) *Router {
	r := &Router{
		manager: manager,
		hub:     h,
		log:     utils.Component("router"),
	}
	h.SetOnUnregister(r.teardown)
	return r
}

// teardown 发起者离开或最后一个订阅者离开时结束会话，会话只释放一次
func (r *Router) teardown(s *hub.Subscriber, remaining int) {
	log := r.log.WithField("subscriber", s.ID())
	if r.manager.ReleaseOwner(s.ID()) {
		log.Info("发起者离开，结束观看")
		return
	}
	if remaining == 0 && r.manager.Stop() {
		log.Info("没有订阅者，结束观看")
	}
}

// Join 注册订阅者，已有会话时告知当前观看目标
func (r *Router) Join(s *hub.Subscriber) {
	r.hub.Register(s)
	if snap := r.manager.Snapshot(); snap.Target != "" {
		r.hub.Send(s, model.NewInfo("Already watching "+snap.Target))
	}
}

func (r *Router) Leave(s *hub.Subscriber) {
	r.hub.Unregister(s)
}

// Dispatch 处理一条订阅者消息，非法 JSON 直接丢弃
func (r *Router) Dispatch(s *hub.Subscriber, data []byte) {
	cmd, err := protocol.ParseCommand(data)
	if err != nil {
		r.log.WithField("subscriber", s.ID()).Debugf("丢弃消息: %v", err)
		return
	}
	r.Execute(s, cmd)
}

// Execute 执行命令，s 为 nil 表示本地控制台，回复写入日志
func (r *Router) Execute(s *hub.Subscriber, cmd protocol.Command) {
	switch cmd.Name {
	case protocol.CommandWatch:
		r.watch(s, cmd.Username)

	case protocol.CommandTest:
		if cmd.Gift == "" {
			r.reply(s, model.NewError("test requires gift"))
			return
		}
		r.hub.Broadcast(handler.TestGift(cmd.Gift, cmd.Count, orDefault(cmd.From)))

	case protocol.CommandTestComment:
		if cmd.Text == "" {
			r.reply(s, model.NewError("test_comment requires text"))
			return
		}
		r.hub.Broadcast(model.NewComment(cmd.Text, orDefault(cmd.From)))

	case protocol.CommandPing:
		r.reply(s, model.NewPong())

	case protocol.CommandStatus:
		r.reply(s, r.Status())

	default:
		r.reply(s, model.NewError("Unknown command"))
	}
}

func (r *Router) watch(s *hub.Subscriber, target string) {
	if target == "" {
		r.reply(s, model.NewError("watch requires username"))
		return
	}
	owner := ""
	if s != nil {
		owner = s.ID()
	}
	err := r.manager.Watch(target, owner, func() {
		r.reply(s, model.NewInfo("Watching "+target))
	})
	switch {
	case errors.Is(err, client.ErrAlreadyWatching):
		r.reply(s, model.NewInfo("Already watching "+target))
	case err != nil:
		r.log.WithField("target", target).Warnf("无法开始观看: %v", err)
	}
}

// StopWatching 结束当前会话
func (r *Router) StopWatching() bool {
	return r.manager.Stop()
}

// Shutdown 通知所有订阅者后断开上游并关闭订阅者
func (r *Router) Shutdown(message string) {
	r.hub.Broadcast(model.NewShutdown(message))
	r.manager.Close()
	r.hub.Close()
}

// Status 当前连接状态快照
func (r *Router) Status() model.Status {
	snap := r.manager.Snapshot()
	return model.NewStatus(snap.Connected(), snap.Target, r.hub.Count())
}

func (r *Router) reply(s *hub.Subscriber, ev model.Event) {
	if s == nil {
		r.log.Infof("控制台: %+v", ev)
		return
	}
	r.hub.Send(s, ev)
}

func orDefault(from string) string {
	if from == "" {
		return defaultTestUser
	}
	return from
}
