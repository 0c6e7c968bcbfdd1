package tcd1304

import "fmt"

// FormatFrame formats a frame into a one-line human-readable summary.
func FormatFrame(f *Frame) string {
	min, max, mean := signalStats(f)
	return fmt.Sprintf("frame %5d  signal min=%4d max=%4d mean=%6.1f  dark=%6.1f  crc=0x%04X",
		f.Counter, min, max, mean, f.DarkLevel(), f.Checksum)
}

// FormatReply formats a parsed reply for display.
func FormatReply(r Reply) string {
	switch r.Kind {
	case ReplyReady:
		return "device ready"
	case ReplyStarted:
		return "acquisition started"
	case ReplyStopped:
		return "acquisition stopped"
	case ReplyStatus:
		return fmt.Sprintf("state=%s int_time=%dµs", r.State, r.IntegrationTime)
	case ReplyIntTimeSet:
		return fmt.Sprintf("integration time set to %dµs", r.Value)
	case ReplyMustStopFirst:
		return "rejected: acquisition running"
	case ReplyRange:
		return fmt.Sprintf("rejected: value outside %d-%dµs", r.Min, r.Max)
	case ReplyInvalidParam:
		return "rejected: unparseable parameter"
	case ReplyCmdTooLong:
		return "rejected: command too long"
	case ReplyUnknownCmd:
		return fmt.Sprintf("rejected: unknown command %q", r.Text)
	default:
		return r.Raw
	}
}

// signalStats computes min/max/mean over the light-sensing pixels only.
func signalStats(f *Frame) (min, max uint16, mean float64) {
	signal := f.SignalPixels()
	min = signal[0]
	max = signal[0]
	var sum uint64
	for _, px := range signal {
		if px < min {
			min = px
		}
		if px > max {
			max = px
		}
		sum += uint64(px)
	}
	mean = float64(sum) / float64(len(signal))
	return min, max, mean
}
