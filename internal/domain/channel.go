package domain

// Channel identifies an outreach channel.
type Channel string

const (
	ChannelEmail     Channel = "email"
	ChannelSMS       Channel = "sms"
	ChannelChat      Channel = "chat"
	ChannelVoiceDrop Channel = "voice_drop"
	ChannelPostal    Channel = "postal"
)

// AllChannels lists every channel the platform can dispatch on.
var AllChannels = []Channel{ChannelEmail, ChannelSMS, ChannelChat, ChannelVoiceDrop, ChannelPostal}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelChat, ChannelVoiceDrop, ChannelPostal:
		return true
	}
	return false
}

// Plan identifies an organization's subscription tier. The tier decides
// which channels the organization may dispatch on.
type Plan string

const (
	PlanStarter Plan = "starter"
	PlanGrowth  Plan = "growth"
	PlanScale   Plan = "scale"
)

// planChannels maps each plan to its channel entitlements.
var planChannels = map[Plan][]Channel{
	PlanStarter: {ChannelEmail},
	PlanGrowth:  {ChannelEmail, ChannelSMS, ChannelChat},
	PlanScale:   {ChannelEmail, ChannelSMS, ChannelChat, ChannelVoiceDrop, ChannelPostal},
}

// Includes reports whether the plan entitles the organization to the channel.
// Unknown plans include nothing.
func (p Plan) Includes(c Channel) bool {
	for _, pc := range planChannels[p] {
		if pc == c {
			return true
		}
	}
	return false
}

// Channels returns the channels included in the plan.
func (p Plan) Channels() []Channel {
	out := make([]Channel, len(planChannels[p]))
	copy(out, planChannels[p])
	return out
}
