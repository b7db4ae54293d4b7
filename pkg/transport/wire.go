package transport

import (
	"bytes"
	"encoding/gob"

	"github.com/matsnd/eventstore/pkg/elections"
)

func init() {
	gob.Register(elections.ViewChange{})
	gob.Register(elections.ViewChangeProof{})
	gob.Register(elections.Prepare{})
	gob.Register(elections.PrepareOk{})
	gob.Register(elections.Proposal{})
	gob.Register(elections.Accept{})
	gob.Register(elections.LeaderIsResigning{})
	gob.Register(elections.LeaderIsResigningOk{})
}

// envelope carries one election message as an interface value; gob
// requires every concrete type crossing the wire to be pre-registered
// (see init above).
type envelope struct {
	Msg elections.Message
}

func encode(msg elections.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(envelope{Msg: msg}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(b []byte) (elections.Message, error) {
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&env); err != nil {
		return nil, err
	}
	return env.Msg, nil
}
