package randx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomCode(t *testing.T) {
	req := require.New(t)

	code, err := RoomCode()
	req.NoError(err)
	req.Len(code, RoomCodeLength)
	req.True(IsValidRoomCode(code))
	req.True(IsValidRoomCode("ABCD1234"))
	req.False(IsValidRoomCode("abcd1234"))
	req.False(IsValidRoomCode("ABC"))
}

func TestAnonymousID(t *testing.T) {
	req := require.New(t)

	id, err := AnonymousID()
	req.NoError(err)
	req.True(IsValidAnonymousID(id))
	req.False(IsValidAnonymousID("guest_abc"))
	req.False(IsValidAnonymousID("anon_short"))
}

func TestMessageID_IsTimeOrdered(t *testing.T) {
	req := require.New(t)

	prev, err := MessageID()
	req.NoError(err)
	for range 100 {
		next, err := MessageID()
		req.NoError(err)
		req.Less(prev, next)
		prev = next
	}
}
