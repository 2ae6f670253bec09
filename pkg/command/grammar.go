package command

import (
	"errors"
	"fmt"
	"strings"
)

// Grammar errors. All of them match ErrGrammar.
var (
	ErrGrammar            = errors.New("malformed command")
	ErrMissingField       = fmt.Errorf("%w: missing field", ErrGrammar)
	ErrEmptySalt          = fmt.Errorf("%w: empty salt", ErrGrammar)
	ErrUnknownMessageType = fmt.Errorf("%w: unknown message type", ErrGrammar)
	ErrSeparatorInField   = fmt.Errorf("%w: field contains separator", ErrGrammar)
)

// scanner walks the plaintext left to right, one field at a time.
type scanner struct {
	rest string
	done bool
}

// field returns the next field, which must be terminated by the separator.
func (s *scanner) field(name string) (string, error) {
	if s.done {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	i := strings.Index(s.rest, Separator)
	if i < 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	f := s.rest[:i]
	s.rest = s.rest[i+1:]
	return f, nil
}

// last returns the final field of a command, which ends at the next
// separator or at the end of input. Anything after it is ignored.
func (s *scanner) last(name string) (string, error) {
	if s.done {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	s.done = true
	if i := strings.Index(s.rest, Separator); i >= 0 {
		return s.rest[:i], nil
	}
	return s.rest, nil
}

// Parse decodes a plaintext command.
func Parse(plaintext []byte) (Command, error) {
	s := &scanner{rest: string(plaintext)}

	salt, err := s.field("salt")
	if err != nil {
		return nil, err
	}
	if salt == "" {
		return nil, ErrEmptySalt
	}
	msgType, err := s.field("messageType")
	if err != nil {
		return nil, err
	}

	if MessageType(msgType) == TypeFetchNVCN {
		deviceID, err := s.last("deviceId")
		if err != nil {
			return nil, err
		}
		return FetchNVCN{Header{Salt: salt, DeviceID: deviceID}}, nil
	}

	deviceID, err := s.field("deviceId")
	if err != nil {
		return nil, err
	}
	h := Header{Salt: salt, DeviceID: deviceID}

	switch MessageType(msgType) {
	case TypePasswordChange:
		nvcn, err := s.field("nvcn")
		if err != nil {
			return nil, err
		}
		pw, err := s.last("newPassword")
		if err != nil {
			return nil, err
		}
		return PasswordChange{Header: h, Guard: Guard{nvcn}, NewPassword: pw}, nil

	case TypeRename:
		nvcn, err := s.field("nvcn")
		if err != nil {
			return nil, err
		}
		name, err := s.last("newName")
		if err != nil {
			return nil, err
		}
		return Rename{Header: h, Guard: Guard{nvcn}, NewName: name}, nil

	case TypeWifiConfig:
		nvcn, err := s.field("nvcn")
		if err != nil {
			return nil, err
		}
		ssid, err := s.field("ssid")
		if err != nil {
			return nil, err
		}
		psk, err := s.last("preSharedKey")
		if err != nil {
			return nil, err
		}
		return WifiConfig{Header: h, Guard: Guard{nvcn}, SSID: ssid, PreSharedKey: psk}, nil

	case TypeResetToDefault:
		nvcn, err := s.last("nvcn")
		if err != nil {
			return nil, err
		}
		return ResetToDefault{Header: h, Guard: Guard{nvcn}}, nil

	case TypeRestart:
		nvcn, err := s.last("nvcn")
		if err != nil {
			return nil, err
		}
		return Restart{Header: h, Guard: Guard{nvcn}}, nil

	case TypeControl:
		nvcn, err := s.field("nvcn")
		if err != nil {
			return nil, err
		}
		action, err := s.last("action")
		if err != nil {
			return nil, err
		}
		return Control{Header: h, Guard: Guard{nvcn}, Action: action}, nil

	case TypeMeasure:
		nvcn, err := s.field("nvcn")
		if err != nil {
			return nil, err
		}
		action, err := s.last("action")
		if err != nil {
			return nil, err
		}
		return Measure{Header: h, Guard: Guard{nvcn}, Action: action}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, msgType)
}

// Format builds the plaintext for cmd.
func Format(cmd Command) (string, error) {
	h := cmd.Head()
	if h.Salt == "" {
		return "", ErrEmptySalt
	}
	parts := append([]string{h.Salt, cmd.Type().String(), h.DeviceID}, cmd.fields()...)
	for _, p := range parts {
		if strings.Contains(p, Separator) {
			return "", ErrSeparatorInField
		}
	}
	return strings.Join(parts, Separator), nil
}
