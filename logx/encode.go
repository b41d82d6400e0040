package logx

import (
	"context"
	"log/slog"

	"github.com/imattdu/xtrace/cctx"
	"github.com/imattdu/xtrace/errorx"
	"github.com/imattdu/xtrace/tracex"
)

// encodeLog turns ctx, tag, msg and kv into the attrs of one record.
func encodeLog(ctx context.Context, tag string, msg any, kv ...any) []slog.Attr {
	attrs := make([]slog.Attr, 0, 16)

	if tag != "" {
		attrs = append(attrs, slog.String("tag", tag))
	}

	c := getCaller()
	attrs = append(attrs,
		slog.String("file", c.file),
		slog.Int("line", c.line),
		slog.String("func", c.funcName),
	)

	// causal context of the current execution path
	if md, ok := tracex.GetContext(ctx); ok {
		attrs = append(attrs,
			slog.String(TaskID, md.TaskID().String()),
			slog.String(OpID, md.OpIDString()),
		)
	}

	switch v := msg.(type) {
	case *errorx.Error:
		attrs = append(attrs,
			slog.Int("code", v.Code.Code),
			slog.String("code_msg", v.Code.Message),
			slog.String("err_type", v.Type.Message),
			slog.String("service", v.Service.Message),
			slog.Bool("success", v.Success),
		)
		for k, vv := range v.Fields {
			attrs = append(attrs, slog.Any(k, vv))
		}
		if v.Message != "" {
			attrs = append(attrs, slog.String("msg", v.Message))
		}
		if v.Cause != nil {
			attrs = append(attrs, slog.String("cause", v.Cause.Error()))
		}
	case error:
		attrs = append(attrs, slog.String("error", v.Error()))
	default:
		attrs = append(attrs, slog.Any("msg", v))
	}

	// shared request fields from cctx; the execution path cell is not data
	if bag := cctx.All(ctx); len(bag) > 0 {
		for k, v := range bag {
			if k == tracex.PathKey {
				continue
			}
			attrs = append(attrs, slog.Any(k, v))
		}
	}

	// trailing kv pairs, a key must be a string
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(k, kv[i+1]))
	}

	return attrs
}
