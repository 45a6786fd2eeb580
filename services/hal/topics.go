package hal

import "sensorcode-go/bus"

func topicConfigHAL() bus.Topic { return bus.T("config", "hal") }
func topicHALState() bus.Topic  { return bus.T("hal", "state") }

// hal/cap/<domain>/<kind>/<name>/...
func capBase(a CapAddr) bus.Topic   { return bus.T("hal", "cap", a.Domain, a.Kind, a.Name) }
func capInfo(a CapAddr) bus.Topic   { return capBase(a).Append("info") }
func capStatus(a CapAddr) bus.Topic { return capBase(a).Append("status") }
func capValue(a CapAddr) bus.Topic  { return capBase(a).Append("value") }

// CapControl is hal/cap/<domain>/<kind>/<name>/control/<verb>.
func CapControl(a CapAddr, verb string) bus.Topic { return capBase(a).Append("control", verb) }

// CapValue, CapStatus and CapInfo are exported for subscribers.
func CapValue(a CapAddr) bus.Topic  { return capValue(a) }
func CapStatus(a CapAddr) bus.Topic { return capStatus(a) }
func CapInfo(a CapAddr) bus.Topic   { return capInfo(a) }

// hal/cap/+/+/+/control/+
func ctrlWildcard() bus.Topic {
	return bus.T("hal", "cap", "+", "+", "+", "control", "+")
}

// AddrOf parses the capability address out of a hal/cap/... topic.
func AddrOf(t bus.Topic) (CapAddr, bool) {
	if t.Len() < 5 || t.At(0) != "hal" || t.At(1) != "cap" {
		return CapAddr{}, false
	}
	d, ok1 := t.At(2).(string)
	k, ok2 := t.At(3).(string)
	n, ok3 := t.At(4).(string)
	if !ok1 || !ok2 || !ok3 {
		return CapAddr{}, false
	}
	return CapAddr{Domain: d, Kind: k, Name: n}, true
}
