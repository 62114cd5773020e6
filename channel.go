package etl

// Channel is a pipeline stage label denoting how processed a dataset is.
type Channel string

const (
	ChannelSnapshot Channel = "snapshot"
	Meadow          Channel = "meadow"
	Garden          Channel = "garden"
	Grapher         Channel = "grapher"
	Examples        Channel = "examples"
	Export          Channel = "export"
)

// Channels lists every known channel, upstream first.
var Channels = []Channel{ChannelSnapshot, Meadow, Garden, Grapher, Examples, Export}

// upstreamChannels are searched when a dependency is requested without a
// channel. Grapher and export datasets are terminal and only matched when
// asked for explicitly.
var upstreamChannels = []Channel{ChannelSnapshot, Meadow, Garden, Examples}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	for _, k := range Channels {
		if c == k {
			return true
		}
	}
	return false
}

// ParseChannel returns the Channel named by s, or an UnknownChannel error.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", &Error{Kind: UnknownChannel, Name: s}
	}
	return c, nil
}
