package hub

import (
	"github.com/autopeer-io/otad/internal/otad/core"
	"github.com/autopeer-io/otad/internal/pkg/mqtt/paths"
)

type route struct {
	segment string
	retain  bool
}

// events maps every event to its topic segment. Presence and progress are
// retained so a fleet service that subscribes late sees the latest value.
var events = map[core.EventType]route{
	core.EventCommand:     {segment: paths.Command},
	core.EventCommandAck:  {segment: paths.CommandAck},
	core.EventRegister:    {segment: paths.Register, retain: true},
	core.EventOnline:      {segment: paths.Online, retain: true},
	core.EventOTAProgress: {segment: paths.OTAProgress, retain: true},
}
