package tools

import "context"

// NoopClient is used when tool calling is disabled.
type NoopClient struct{}

func (n *NoopClient) Call(ctx context.Context, name string, args Arguments) (string, error) {
	return "", ErrToolNotFound
}

func (n *NoopClient) List() ([]Definition, error) {
	return nil, nil
}

func (n *NoopClient) Close() error {
	return nil
}
