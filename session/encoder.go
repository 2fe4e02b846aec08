package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Blob layout, format version 1. The header is fixed-offset so the store's
// Lua scripts can patch flags and timestamps in place without a decode:
//
//	[0]     format version
//	[1]     active flag (0/1)
//	[2]     close reason
//	[3]     remember-me flag (0/1)
//	[4:12]  created at, unix seconds, big endian
//	[12:20] last activity at
//	[20:28] closed at (0 while open)
//	[28:36] generation
//	[36:]   length-prefixed strings: account id, ip, device, browser
const (
	formatVersion = 1
	headerSize    = 36
)

// Encode serializes s into the version-1 binary layout.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(formatVersion)
	buf.WriteByte(boolByte(s.Active))
	buf.WriteByte(byte(s.CloseReason))
	buf.WriteByte(boolByte(s.RememberMe))

	for _, v := range []int64{s.CreatedAt, s.LastActivityAt, s.ClosedAt, s.Generation} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"account id", s.AccountID},
		{"ip", s.IP},
		{"device", s.Device},
		{"browser", s.Browser},
	} {
		if len(field.value) > 255 {
			return nil, errors.New("session " + field.name + " too long")
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	return buf.Bytes(), nil
}

// Decode parses a version-1 blob. The session ID is not part of the blob;
// callers set it from the Redis key.
func Decode(data []byte) (*Session, error) {
	if len(data) < headerSize {
		return nil, errors.New("session blob truncated")
	}

	reader := bytes.NewReader(data)

	version, _ := reader.ReadByte()
	if version != formatVersion {
		return nil, errors.New("unsupported session format version")
	}

	s := &Session{}

	active, _ := reader.ReadByte()
	s.Active = active == 1

	reason, _ := reader.ReadByte()
	s.CloseReason = CloseReason(reason)

	remember, _ := reader.ReadByte()
	s.RememberMe = remember == 1

	for _, dst := range []*int64{&s.CreatedAt, &s.LastActivityAt, &s.ClosedAt, &s.Generation} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}

	for _, dst := range []*string{&s.AccountID, &s.IP, &s.Device, &s.Browser} {
		v, err := readString(reader)
		if err != nil {
			return nil, err
		}
		*dst = v
	}

	if s.AccountID == "" {
		return nil, errors.New("session blob missing account id")
	}

	return s, nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
