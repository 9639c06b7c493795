package core

import (
	"context"
	"strings"

	"weatherbot/pkg/logx"
)

func noplog() logx.Logger { return logx.Nop() }

func nopHandler(context.Context, *Request) error { return nil }

func contains(s, sub string) bool { return strings.Contains(s, sub) }
