package engine

import (
	"strconv"
	"strings"
)

const mateValue = 30000

// Info is a parsed "info" line. Lines without a principal variation are
// dropped by ParseInfo.
type Info struct {
	Depth    int
	SelDepth int
	MultiPV  int
	ScoreCP  int
	Mate     int
	HasMate  bool
	WDL      [3]int
	HasWDL   bool
	Nodes    int64
	PV       []string
}

func ParseInfo(line string) (Info, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 || parts[0] != "info" {
		return Info{}, false
	}
	info := Info{MultiPV: 1}
	pvIdx := -1

	atoi := func(i int) (int, bool) {
		if i >= len(parts) {
			return 0, false
		}
		v, err := strconv.Atoi(parts[i])
		return v, err == nil
	}

	for i := 1; i < len(parts); i++ {
		switch parts[i] {
		case "depth":
			if v, ok := atoi(i + 1); ok {
				info.Depth = v
			}
			i++
		case "seldepth":
			if v, ok := atoi(i + 1); ok {
				info.SelDepth = v
			}
			i++
		case "multipv":
			if v, ok := atoi(i + 1); ok {
				info.MultiPV = v
			}
			i++
		case "nodes":
			if i+1 < len(parts) {
				if v, err := strconv.ParseInt(parts[i+1], 10, 64); err == nil {
					info.Nodes = v
				}
			}
			i++
		case "score":
			if i+2 < len(parts) {
				v, err := strconv.Atoi(parts[i+2])
				if err == nil {
					switch parts[i+1] {
					case "cp":
						info.ScoreCP = v
					case "mate":
						info.Mate = v
						info.HasMate = true
						if v >= 0 {
							info.ScoreCP = mateValue
						} else {
							info.ScoreCP = -mateValue
						}
					}
				}
				i += 2
			}
		case "wdl":
			w, ok1 := atoi(i + 1)
			d, ok2 := atoi(i + 2)
			l, ok3 := atoi(i + 3)
			if ok1 && ok2 && ok3 {
				info.WDL = [3]int{w, d, l}
				info.HasWDL = true
			}
			i += 3
		case "pv":
			pvIdx = i + 1
			i = len(parts)
		}
	}

	if pvIdx == -1 || pvIdx >= len(parts) {
		return Info{}, false
	}
	info.PV = append([]string(nil), parts[pvIdx:]...)
	return info, true
}
