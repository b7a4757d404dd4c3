package forward

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runNegotiation(t *testing.T, request []byte) (string, *bytes.Buffer, error) {
	t.Helper()
	out := &bytes.Buffer{}
	dest, err := negotiateSocks(bufio.NewReader(bytes.NewReader(request)), out)
	return dest, out, err
}

func TestSocks5DomainConnect(t *testing.T) {
	request := []byte{
		5, 1, 0, // greeting: one method, no-auth
		5, 1, 0, 3, // CONNECT, domain address
		11, 'e', 'x', 'a', 'm', 'p', 'l', 'e', '.', 'c', 'o', 'm',
		0x1f, 0x90, // port 8080
	}

	dest, out, err := runNegotiation(t, request)
	require.NoError(t, err)
	assert.Equal(t, "example.com:8080", dest)

	reply := out.Bytes()
	require.GreaterOrEqual(t, len(reply), 4)
	assert.Equal(t, []byte{5, 0}, reply[:2], "no-auth method selected")
	assert.Equal(t, byte(socks5ReplyOK), reply[3])
}

func TestSocks5IPv4Connect(t *testing.T) {
	request := []byte{
		5, 1, 0,
		5, 1, 0, 1, // CONNECT, IPv4
		10, 0, 0, 7,
		0, 22,
	}

	dest, _, err := runNegotiation(t, request)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7:22", dest)
}

func TestSocks5IPv6Connect(t *testing.T) {
	request := []byte{
		5, 1, 0,
		5, 1, 0, 4, // CONNECT, IPv6
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, // ::1
		0x01, 0xbb, // port 443
	}

	dest, _, err := runNegotiation(t, request)
	require.NoError(t, err)
	assert.Equal(t, "[::1]:443", dest)
}

func TestSocks5RejectsNonConnect(t *testing.T) {
	request := []byte{
		5, 1, 0,
		5, 2, 0, 1, // BIND
		10, 0, 0, 7,
		0, 22,
	}

	_, out, err := runNegotiation(t, request)
	require.Error(t, err)

	reply := out.Bytes()
	require.GreaterOrEqual(t, len(reply), 4)
	assert.Equal(t, byte(socks5ReplyCmdUnsupported), reply[3])
}

func TestSocks4Connect(t *testing.T) {
	request := []byte{
		4, 1, // version, CONNECT
		0x1f, 0x90, // port 8080
		10, 1, 2, 3, // destination ip
		'u', 's', 'e', 'r', 0, // user id
	}

	dest, out, err := runNegotiation(t, request)
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3:8080", dest)

	reply := out.Bytes()
	require.Len(t, reply, 8)
	assert.Equal(t, byte(socks4ReplyGranted), reply[1])
}

func TestSocks4aHostnameConnect(t *testing.T) {
	request := []byte{
		4, 1,
		0, 80,
		0, 0, 0, 1, // 0.0.0.x marks the 4a extension
		0, // empty user id
	}
	request = append(request, []byte("internal.example.com")...)
	request = append(request, 0)

	dest, _, err := runNegotiation(t, request)
	require.NoError(t, err)
	assert.Equal(t, "internal.example.com:80", dest)
}

func TestSocks4RejectsNonConnect(t *testing.T) {
	request := []byte{
		4, 2, // BIND
		0, 80,
		10, 1, 2, 3,
		0,
	}

	_, out, err := runNegotiation(t, request)
	require.Error(t, err)

	reply := out.Bytes()
	require.Len(t, reply, 8)
	assert.Equal(t, byte(socks4ReplyRejected), reply[1])
}

func TestUnsupportedSocksVersion(t *testing.T) {
	_, _, err := runNegotiation(t, []byte{6, 0, 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported SOCKS version")
}
