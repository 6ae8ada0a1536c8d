package protocol_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/MrWong99/voxcast/internal/mana"
	"github.com/MrWong99/voxcast/internal/protocol"
)

func TestDecodeBase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{`{"type":"cast","spell_id":"web"}`, protocol.TypeCast, false},
		{`{"type":"listen","action":"start"}`, protocol.TypeListen, false},
		{`{"spell_id":"web"}`, "", true},
		{`not json`, "", true},
	}
	for _, tc := range tests {
		got, err := protocol.DecodeBase([]byte(tc.in))
		if (err != nil) != tc.wantErr {
			t.Errorf("DecodeBase(%s) err = %v", tc.in, err)
			continue
		}
		if got.Type != tc.want {
			t.Errorf("DecodeBase(%s) = %q, want %q", tc.in, got.Type, tc.want)
		}
	}
}

func TestCastMsg_FlatWireFormat(t *testing.T) {
	t.Parallel()
	raw := `{"type":"cast","actor_id":"alice","spell_id":"lightning","transcript":"Молния!","timestamp_ms":1700000000000,"nonce":7}`
	var m protocol.CastMsg
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.ActorID != "alice" || m.SpellID != "lightning" || m.Nonce != 7 || m.TimestampMs != 1700000000000 {
		t.Errorf("decoded %+v", m)
	}
}

func TestManaMsg_FlatWireFormat(t *testing.T) {
	t.Parallel()
	b, err := json.Marshal(protocol.ManaMsg{
		Type: protocol.TypeMana,
		Sync: mana.Sync{Mana: 65, Max: 100, CooldownTicks: 10, RegenPerSec: 5},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"mana","mana":65,"max":100,"cooldown_ticks":10,"regen_per_sec":5}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}

func TestNewError(t *testing.T) {
	t.Parallel()
	b, _ := json.Marshal(protocol.NewError(protocol.ErrUnauthorized, "bad token"))
	if !strings.Contains(string(b), `"code":"E_UNAUTHORIZED"`) || !strings.Contains(string(b), `"type":"error"`) {
		t.Errorf("got %s", b)
	}
}
