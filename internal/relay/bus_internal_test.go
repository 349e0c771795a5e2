package relay

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/omochice/wschat/internal/logger"
)

func TestNATSBus_Decode(t *testing.T) {
	bus := &NATSBus{subject: DefaultSubject, origin: "self", log: logger.Nop()}

	msgFrom := func(origin, data string) *nats.Msg {
		m := nats.NewMsg(DefaultSubject)
		if origin != "" {
			m.Header.Set(originHeader, origin)
		}
		m.Data = []byte(data)
		return m
	}

	tests := []struct {
		name   string
		msg    *nats.Msg
		wantOK bool
	}{
		{"own message", msgFrom("self", `{"uid":"alice","msg":"hi"}`), false},
		{"other instance", msgFrom("other", `{"uid":"alice","msg":"hi"}`), true},
		{"no origin", msgFrom("", `{"msg":"hi"}`), true},
		{"undecodable", msgFrom("other", "not json"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := bus.decode(tt.msg)
			if ok != tt.wantOK {
				t.Fatalf("decode() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && msg.Msg != "hi" {
				t.Errorf("decode() msg = %+v", msg)
			}
		})
	}
}
