// Package autoload initializes the global logger from LOG_* environment
// variables as an import side effect:
//
//	import _ "github.com/waritk/frontdesk/pkg/logger/autoload"
package autoload

import (
	configx "github.com/waritk/frontdesk/pkg/config"
	logx "github.com/waritk/frontdesk/pkg/logger"
)

func init() {
	conf, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*conf)
}
