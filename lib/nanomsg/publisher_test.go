package nanomsg

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/sub"
)

type testUpdate struct {
	UpdType string `json:"updtype"`
	Bundle  string `json:"bundle"`
}

func TestPublishAsJSON(t *testing.T) {
	const url = "inproc://publisher_test"
	p, err := NewPublisherURL(url, 10, nil)
	require.NoError(t, err)
	defer p.Close()

	sock, err := sub.NewSocket()
	require.NoError(t, err)
	defer sock.Close()
	require.NoError(t, sock.SetOption(mangos.OptionSubscribe, []byte("")))
	require.NoError(t, sock.SetOption(mangos.OptionRecvDeadline, 100*time.Millisecond))
	require.NoError(t, sock.Dial(url))

	// subscriber may join late, repeat until something arrives
	var data []byte
	for i := 0; i < 50 && data == nil; i++ {
		require.NoError(t, p.PublishAsJSON(&testUpdate{UpdType: "promote", Bundle: "BUNDLE"}))
		data, _ = sock.Recv()
	}
	require.NotNil(t, data)
	var upd testUpdate
	require.NoError(t, json.Unmarshal(data, &upd))
	assert.Equal(t, "promote", upd.UpdType)
	assert.Equal(t, "BUNDLE", upd.Bundle)
}

func TestNilPublisherDiscards(t *testing.T) {
	var p *Publisher
	assert.NoError(t, p.PublishAsJSON(map[string]int{"a": 1}))
	assert.NoError(t, p.PublishData([]byte("x")))
	p.Close()
}
