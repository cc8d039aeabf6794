package provisioning

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	qrcode "github.com/skip2/go-qrcode"
)

// Renderer turns payload content into something a provisioning client can
// scan or read.
type Renderer interface {
	Render(content string) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(content string) error

// Render calls f(content).
func (f RendererFunc) Render(content string) error { return f(content) }

// QRRenderer prints a QR code as text to a writer.
type QRRenderer struct {
	w        io.Writer
	level    qrcode.RecoveryLevel
	inverted bool
}

// NewQRRenderer creates a renderer writing to w with low error correction,
// matching what provisioning clients expect from a terminal code.
func NewQRRenderer(w io.Writer) *QRRenderer {
	return &QRRenderer{w: w, level: qrcode.Low}
}

// SetInverted swaps dark and light modules, for light-on-dark terminals.
func (r *QRRenderer) SetInverted(inverted bool) {
	r.inverted = inverted
}

// Render encodes content and writes the code.
func (r *QRRenderer) Render(content string) error {
	q, err := qrcode.New(content, r.level)
	if err != nil {
		return err
	}
	_, err = io.WriteString(r.w, q.ToSmallString(r.inverted))
	return err
}

// Present encodes payload, renders it and logs the human-readable
// instruction line. A rendering failure is returned wrapped in
// ErrRenderFailed and not retried.
func Present(ctx context.Context, payload *Payload, renderer Renderer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	content, err := payload.Encode()
	if err != nil {
		return err
	}

	if renderer == nil {
		return fmt.Errorf("%w: no renderer", ErrRenderFailed)
	}
	if err := renderer.Render(string(content)); err != nil {
		return fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}

	logger.InfoContext(ctx, fmt.Sprintf("Scan the above QR code to provision '%s' with POP '%s'.", payload.Name, payload.PoP),
		slog.String("transport", string(payload.Transport)))
	return nil
}
