package console

import (
	"bufio"
	"context"
	"io"
	"strings"

	"live-relay/hub"
	"live-relay/model"
	"live-relay/protocol"
	"live-relay/utils"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const usage = "可用命令: watch <目标> | gift <礼物> [数量] | comment <文本> | status | stop"

// Executor 控制台命令的执行者
type Executor interface {
	Execute(s *hub.Subscriber, cmd protocol.Command)
	StopWatching() bool
	Status() model.Status
}

// Console 从标准输入读取本地操作命令
type Console struct {
	exec Executor
	in   io.Reader
	log  *logrus.Entry
}

func New(exec Executor, in io.Reader) *Console {
	return &Console{
		exec: exec,
		in:   in,
		log:  utils.Component("console"),
	}
}

// Run 逐行执行命令，直到输入结束或 ctx 结束
func (c *Console) Run(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.log.Info(usage)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			c.Handle(line)
		}
	}
}

// Handle 执行一行命令
func (c *Console) Handle(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch strings.ToLower(fields[0]) {
	case "watch":
		c.exec.Execute(nil, protocol.Command{Name: protocol.CommandWatch, Username: rest})
	case "gift":
		cmd := protocol.Command{Name: protocol.CommandTest, From: "console"}
		if len(fields) > 1 {
			cmd.Gift = fields[1]
		}
		if len(fields) > 2 {
			cmd.Count = gjson.Result{Type: gjson.String, Str: fields[2]}
		}
		c.exec.Execute(nil, cmd)
	case "comment":
		c.exec.Execute(nil, protocol.Command{Name: protocol.CommandTestComment, Text: rest, From: "console"})
	case "status":
		st := c.exec.Status()
		c.log.WithFields(logrus.Fields{
			"connected":   st.Connected,
			"watching":    st.Watching,
			"subscribers": st.SubscriberCount,
		}).Info("当前状态")
	case "stop":
		if !c.exec.StopWatching() {
			c.log.Info("当前没有观看")
		}
	default:
		c.log.Warnf("未知命令 %q，%s", fields[0], usage)
	}
}
