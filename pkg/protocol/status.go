package protocol

// Status is the decoded payload of an extended poll response. Parsing is
// purely positional; board-type validation happens in the mapper, which
// knows which fields the board actually populates.
type Status struct {
	DeviceTag   byte
	Outputs     byte // relay bitmap, channel n = bit n-1
	Inputs      byte // wall input bitmap
	DimmerLevel byte // 0-255
	Temperature float64
	TempSign    byte // 0x2D when negative, 0x00 otherwise
	Setpoint    float64
	Season      byte
}

// ParseStatus decodes the fixed poll status layout from a frame payload
func ParseStatus(data [DataLength]byte) Status {
	temp := float64(data[4]) + float64(data[5])/10.0
	if data[6] == DataTempNegative {
		temp = -temp
	}
	return Status{
		DeviceTag:   data[0],
		Outputs:     data[1],
		Inputs:      data[2],
		DimmerLevel: data[3],
		Temperature: temp,
		TempSign:    data[6],
		Setpoint:    float64(data[8]) + float64(data[7])/10.0,
		Season:      data[9],
	}
}

// OutputOn reports whether relay channel n (1-8) is on in the outputs bitmap
func (s Status) OutputOn(channel int) bool {
	if channel < 1 || channel > MaxLightChannels {
		return false
	}
	return s.Outputs&(1<<uint(channel-1)) != 0
}

// InputOn reports whether wall input n (1-8) is active
func (s Status) InputOn(channel int) bool {
	if channel < 1 || channel > MaxLightChannels {
		return false
	}
	return s.Inputs&(1<<uint(channel-1)) != 0
}
