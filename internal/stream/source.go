package stream

import "context"

// FrameDialer establishes the transport behind a subscription URL.
type FrameDialer interface {
	Dial(ctx context.Context, rawURL string) (FrameConn, error)
}

// FrameConn is an established transport yielding text frames.
type FrameConn interface {
	// ReadFrame blocks for the next frame. It returns io.EOF once the peer
	// ended the stream cleanly and any other error on transport failure.
	ReadFrame() ([]byte, error)
	// Close releases the transport and unblocks a pending ReadFrame.
	Close() error
}
