package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionTypeScoped(t *testing.T) {
	assert.True(t, SubscriptionApplication.Scoped())
	assert.True(t, SubscriptionRegistration.Scoped())
	assert.False(t, SubscriptionHelp.Scoped())
	assert.False(t, SubscriptionTest.Scoped())
	assert.False(t, SubscriptionType("Bogus").Valid())
}

func TestChannelFlagsEnabled(t *testing.T) {
	flags := ChannelFlags{Email: true, WhatsApp: true}
	var enabled []Channel
	for _, c := range Channels() {
		if flags.Enabled(c) {
			enabled = append(enabled, c)
		}
	}
	assert.Equal(t, []Channel{ChannelEmail, ChannelWhatsapp}, enabled)
	assert.True(t, flags.Any())
	assert.False(t, ChannelFlags{}.Any())
}

func TestSeverityRank(t *testing.T) {
	assert.Less(t, SeverityInfo.Rank(), SeverityWarning.Rank())
	assert.Less(t, SeverityError.Rank(), SeverityException.Rank())
}
