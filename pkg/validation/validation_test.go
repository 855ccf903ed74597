package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePeerID(t *testing.T) {
	assert.NoError(t, ValidatePeerID("a1b2-c3d4_e5"))
	assert.Error(t, ValidatePeerID(""))
	assert.Error(t, ValidatePeerID("has spaces"))
	assert.Error(t, ValidatePeerID(strings.Repeat("x", 101)))
}

func TestValidateRoomName(t *testing.T) {
	assert.NoError(t, ValidateRoomName("Daily standup"))
	assert.Error(t, ValidateRoomName(""))
	assert.Error(t, ValidateRoomName("   "))
	assert.Error(t, ValidateRoomName(strings.Repeat("x", 101)))
}

func TestValidateDisplayName(t *testing.T) {
	assert.NoError(t, ValidateDisplayName("Alice"))
	assert.NoError(t, ValidateDisplayName("アリス"))
	assert.Error(t, ValidateDisplayName(""))
	assert.Error(t, ValidateDisplayName(strings.Repeat("y", 65)))
}

func TestValidateLanguage(t *testing.T) {
	assert.NoError(t, ValidateLanguage("en"))
	assert.NoError(t, ValidateLanguage("en-US"))
	assert.NoError(t, ValidateLanguage("pt-BR"))
	assert.Error(t, ValidateLanguage(""))
	assert.Error(t, ValidateLanguage("english language"))
}

func TestValidateSDP(t *testing.T) {
	valid := "v=0\r\no=- 123 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"
	assert.NoError(t, ValidateSDP(valid))
	assert.Error(t, ValidateSDP(""))
	assert.Error(t, ValidateSDP("not sdp at all"))
	assert.Error(t, ValidateSDP("v=0 only version"))
}

func TestValidateMaxParticipants(t *testing.T) {
	assert.NoError(t, ValidateMaxParticipants(2, 10))
	assert.NoError(t, ValidateMaxParticipants(10, 10))
	assert.Error(t, ValidateMaxParticipants(1, 10))
	assert.Error(t, ValidateMaxParticipants(11, 10))
	assert.NoError(t, ValidateMaxParticipants(50, 0))
}
