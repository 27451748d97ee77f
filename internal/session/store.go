package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Fixed storage keys
const (
	KeyConnected      = "burrow_wallet_connection"
	KeyAddress        = "burrow_wallet_address"
	KeyWalletKind     = "burrowgame_wallet_type"
	KeyLastDisconnect = "lastDisconnectTime"
)

const connectedFlag = "true"

// Descriptor is the minimal persisted session
type Descriptor struct {
	WalletKind string
	Address    string
	Connected  bool
}

// Store persists the session descriptor and the last disconnect time
type Store struct {
	kv  KV
	log *logrus.Logger
}

// NewStore wraps kv. A nil logger uses the standard logger.
func NewStore(kv KV, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{kv: kv, log: logger}
}

func isCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}

// Save writes the three descriptor keys
func (s *Store) Save(ctx context.Context, d Descriptor) error {
	if d.Address == "" {
		return fmt.Errorf("cannot save session without an address")
	}
	if err := s.kv.Set(ctx, KeyAddress, d.Address); err != nil {
		return fmt.Errorf("failed to save session address: %w", err)
	}
	if err := s.kv.Set(ctx, KeyWalletKind, d.WalletKind); err != nil {
		return fmt.Errorf("failed to save session wallet kind: %w", err)
	}
	// the flag goes last so a partial write never reads back as connected
	if d.Connected {
		if err := s.kv.Set(ctx, KeyConnected, connectedFlag); err != nil {
			return fmt.Errorf("failed to save session flag: %w", err)
		}
	} else if err := s.kv.Delete(ctx, KeyConnected); err != nil {
		return fmt.Errorf("failed to save session flag: %w", err)
	}
	return nil
}

// Load returns the stored descriptor, or nil when any key is missing or the
// storage cannot be parsed
func (s *Store) Load(ctx context.Context) (*Descriptor, error) {
	values := make(map[string]string, 3)
	for _, key := range []string{KeyConnected, KeyAddress, KeyWalletKind} {
		v, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			if isCorrupt(err) {
				s.log.WithError(err).Warn("⚠️  Session storage unreadable, treating as empty")
				return nil, nil
			}
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		if !ok || v == "" {
			return nil, nil
		}
		values[key] = v
	}

	if values[KeyConnected] != connectedFlag {
		return nil, nil
	}
	return &Descriptor{
		WalletKind: values[KeyWalletKind],
		Address:    values[KeyAddress],
		Connected:  true,
	}, nil
}

// WasConnected reports whether the connected flag is set
func (s *Store) WasConnected(ctx context.Context) bool {
	v, ok, err := s.kv.Get(ctx, KeyConnected)
	return err == nil && ok && v == connectedFlag
}

// Clear removes the descriptor keys. The disconnect timestamp is kept.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyConnected, KeyAddress, KeyWalletKind); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// RecordDisconnect stores t as unix milliseconds
func (s *Store) RecordDisconnect(ctx context.Context, t time.Time) error {
	if err := s.kv.Set(ctx, KeyLastDisconnect, strconv.FormatInt(t.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("failed to record disconnect time: %w", err)
	}
	return nil
}

// LastDisconnect returns the recorded disconnect time. ok is false when none
// is stored or the value cannot be parsed.
func (s *Store) LastDisconnect(ctx context.Context) (t time.Time, ok bool, err error) {
	v, found, err := s.kv.Get(ctx, KeyLastDisconnect)
	if err != nil {
		if isCorrupt(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to read disconnect time: %w", err)
	}
	if !found {
		return time.Time{}, false, nil
	}
	ms, perr := strconv.ParseInt(v, 10, 64)
	if perr != nil {
		s.log.WithField("value", v).Warn("⚠️  Ignoring malformed disconnect timestamp")
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}
