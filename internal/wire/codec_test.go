package wire

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Golden(t *testing.T) {
	msgs := []Message{
		Update(Document{"1.1.2": "Developing", "1.1.1": "Mature"}),
		FullSync(Document{"1.1.1": "Mature"}),
		FullSync(nil),
		Heartbeat(),
		HeartbeatAck(),
		Lock(true),
		Lock(false),
		Update(Document{"notes:1.1.1": "R&D <pilot>"}),
	}

	var out bytes.Buffer
	for _, m := range msgs {
		frame, err := Encode(m)
		require.NoError(t, err)
		out.Write(frame)
		out.WriteByte('\n')
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "frames", out.Bytes())
}

func TestEncode_UnknownType(t *testing.T) {
	_, err := Encode(Message{Type: "BOGUS"})
	require.Error(t, err)
}

func TestDecode_Accepts(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Message
	}{
		{
			name: "update",
			raw:  `{"type":"UPDATE","payload":{"2.1.1":"Emerging"}}`,
			want: Update(Document{"2.1.1": "Emerging"}),
		},
		{
			name: "full sync empty",
			raw:  `{"type":"FULL_SYNC","payload":{}}`,
			want: FullSync(Document{}),
		},
		{
			name: "heartbeat without payload",
			raw:  `{"type":"HEARTBEAT"}`,
			want: Heartbeat(),
		},
		{
			name: "heartbeat ack ignores payload",
			raw:  `{"type":"HEARTBEAT_ACK","payload":[1,2,3]}`,
			want: HeartbeatAck(),
		},
		{
			name: "lock",
			raw:  `{"type":"LOCK","payload":{"locked":true}}`,
			want: Lock(true),
		},
		{
			name: "extra fields are ignored",
			raw:  `{"type":"UPDATE","payload":{"a":"b"},"from":"someone"}`,
			want: Update(Document{"a": "b"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"update without payload", `{"type":"UPDATE"}`},
		{"unknown type", `{"type":"Bogus"}`},
		{"null payload", `{"type":"FULL_SYNC","payload":null}`},
		{"array payload", `{"type":"UPDATE","payload":["x"]}`},
		{"string payload", `{"type":"UPDATE","payload":"x"}`},
		{"non-string values", `{"type":"UPDATE","payload":{"a":1}}`},
		{"lock without flag", `{"type":"LOCK","payload":{}}`},
		{"lock with wrong flag type", `{"type":"LOCK","payload":{"locked":"yes"}}`},
		{"not json", `hello`},
		{"json array", `[1,2]`},
		{"json null", `null`},
		{"missing type", `{"payload":{"a":"b"}}`},
		{"lower-case tag", `{"type":"update","payload":{"a":"b"}}`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrRejected)
		})
	}
}

func TestDecode_NormalizesNFC(t *testing.T) {
	// Decomposed form: e followed by U+0301 COMBINING ACUTE ACCENT.
	raw := []byte("{\"type\":\"UPDATE\",\"payload\":{\"cafe\u0301\":\"re\u0301sume\u0301\"}}")
	msg, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, Document{"caf\u00e9": "r\u00e9sum\u00e9"}, msg.Doc)
}

func TestRoundTrip(t *testing.T) {
	doc := Document{"1.1.1": "Mature", "notes:1.1.1": "line one\nline two"}
	frame, err := Encode(Update(doc))
	require.NoError(t, err)

	msg, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, Update(doc), msg)
}
