package safeurl

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_RejectsRestrictedDestinations(t *testing.T) {
	p := &Policy{}
	ctx := context.Background()

	cases := []string{
		"http://127.0.0.1/x",
		"https://169.254.169.254/",
		"http://localhost:9/",
		"http://10.0.0.8/hook",
		"http://192.168.1.20/hook",
		"http://172.16.3.4/hook",
		"http://[::1]/hook",
		"http://0.0.0.0/hook",
		"http://metadata.google.internal/computeMetadata/v1/",
		"ftp://example.com/hook",
		"file:///etc/passwd",
	}
	for _, raw := range cases {
		err := p.Validate(ctx, raw)
		assert.Error(t, err, raw)
	}
}

func TestValidate_AcceptsPublicDestinations(t *testing.T) {
	p := &Policy{}
	ctx := context.Background()

	assert.NoError(t, p.Validate(ctx, "https://example.com/webhook"))
	assert.NoError(t, p.Validate(ctx, "http://hooks.example.org:8443/v1/receive"))
	assert.NoError(t, p.Validate(ctx, "https://93.184.216.34/webhook"))
}

func TestValidate_AllowList(t *testing.T) {
	p := &Policy{AllowHosts: []string{"hooks.example.com"}}
	ctx := context.Background()

	assert.NoError(t, p.Validate(ctx, "https://hooks.example.com/receive"))
	assert.ErrorIs(t, p.Validate(ctx, "https://evil.example.com/receive"), ErrUnsafeURL)
}

func TestValidate_ResolverCatchesPrivateTargets(t *testing.T) {
	p := &Policy{
		LookupIP: func(_ context.Context, host string) ([]net.IP, error) {
			return []net.IP{net.ParseIP("10.20.30.40")}, nil
		},
	}

	err := p.Validate(context.Background(), "https://rebound.example.com/hook")
	require.ErrorIs(t, err, ErrUnsafeURL)
}

func TestValidate_Malformed(t *testing.T) {
	p := &Policy{}
	assert.ErrorIs(t, p.Validate(context.Background(), "http://"), ErrMalformedURL)
	assert.ErrorIs(t, p.Validate(context.Background(), "://nope"), ErrMalformedURL)
}
