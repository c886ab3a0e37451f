package repository

import (
	"encoding/json"
	"fmt"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

// sessionPayload は永続化するセッションの中身。
// IDと有効期限は検索に使うため暗号化対象に含めない。
type sessionPayload struct {
	Token *model.TokenRecord `json:"token,omitempty"`
}

func sealSession(codec Codec, session *model.Session) ([]byte, error) {
	raw, err := json.Marshal(sessionPayload{
		Token: session.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	sealed, err := codec.Encrypt(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session: %w", err)
	}
	return sealed, nil
}

func openSession(codec Codec, data []byte, session *model.Session) error {
	raw, err := codec.Decrypt(data)
	if err != nil {
		return fmt.Errorf("failed to decrypt session: %w", err)
	}
	var p sessionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("failed to unmarshal session: %w", err)
	}
	session.Token = p.Token
	return nil
}

// cloneSession はストア外部からの変更がストア内部に波及しないようにコピーを返す。
func cloneSession(s *model.Session) *model.Session {
	c := *s
	if s.Token != nil {
		tok := *s.Token
		c.Token = &tok
	}
	return &c
}
