package js

import (
	"go.uber.org/zap"

	"github.com/dop251/goja_nodejs/console"
)

// printer routes console output to a logger.
type printer struct {
	log *zap.SugaredLogger
}

var _ console.Printer = printer{}

func (p printer) Log(s string)   { p.log.Info(s) }
func (p printer) Warn(s string)  { p.log.Warn(s) }
func (p printer) Error(s string) { p.log.Error(s) }
