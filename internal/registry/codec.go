// ABOUTME: JSON encoding of stored config and user records
// ABOUTME: Decoding preserves numbers as json.Number and rejects anything that is not an object

package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/2389/vpn-gateway/internal/kv"
)

// userRecord is the stored shape of a user. Records written by the earlier
// service carry the hash under "password"; it is read as a fallback.
type userRecord struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	LegacyHash   string `json:"password,omitempty"`
	VPNConfig    Data   `json:"vpn_config"`
}

func encodeData(data Data) ([]byte, error) {
	if data == nil {
		data = Data{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return raw, nil
}

func decodeData(key string, raw []byte) (Data, error) {
	var data Data
	if err := unmarshal(raw, &data); err != nil {
		return nil, kv.Corrupt(key, err)
	}
	if data == nil {
		return nil, kv.Corrupt(key, errors.New("not a JSON object"))
	}
	return data, nil
}

func encodeUser(u User) ([]byte, error) {
	raw, err := json.Marshal(userRecord{
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		VPNConfig:    u.VPNConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding user: %w", err)
	}
	return raw, nil
}

func decodeUser(key string, raw []byte) (User, error) {
	var rec userRecord
	if err := unmarshal(raw, &rec); err != nil {
		return User{}, kv.Corrupt(key, err)
	}
	if rec.Username == "" {
		return User{}, kv.Corrupt(key, errors.New("missing username"))
	}
	hash := rec.PasswordHash
	if hash == "" {
		hash = rec.LegacyHash
	}
	return User{Username: rec.Username, PasswordHash: hash, VPNConfig: rec.VPNConfig}, nil
}

func unmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	// More reports false before a stray '}' or ']', so read one more token.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON value")
	}
	return nil
}
