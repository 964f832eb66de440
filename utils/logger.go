package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stdout)
	Logger.SetLevel(logrus.InfoLevel)

	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// InitLogger 按配置设置日志级别
func InitLogger(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		Logger.Warnf("无效的日志级别 %q，使用 info", level)
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)
}

// Component 返回带组件字段的日志入口
func Component(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}
