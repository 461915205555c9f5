package replica

import (
	"bufio"
	"strconv"
	"strings"
)

type LinkStatus int

const (
	LinkDown LinkStatus = iota
	LinkUp
)

func (l LinkStatus) String() string {
	if l == LinkUp {
		return "up"
	}
	return "down"
}

// Status is the replication section of INFO as seen by the reader.
type Status struct {
	Role                 string
	MasterHost           string
	MasterPort           int
	Link                 LinkStatus
	LastIOSecondsAgo     int
	LinkDownSinceSeconds int
}

// Master is the master the reader replicates from, zero when it has none.
func (s Status) Master() Addr { return Addr{Host: s.MasterHost, Port: s.MasterPort} }

func (s Status) HasMaster() bool { return s.MasterHost != "" }

// ParseStatus reads `INFO replication` output. Unknown keys and section
// headers are ignored; missing or malformed numbers read as 0 and any link
// status other than "up" is down.
func ParseStatus(info string) Status {
	var st Status
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		switch k {
		case "role":
			st.Role = v
		case "master_host":
			st.MasterHost = v
		case "master_port":
			st.MasterPort = atoi(v)
		case "master_link_status":
			if v == "up" {
				st.Link = LinkUp
			}
		case "master_last_io_seconds_ago":
			st.LastIOSecondsAgo = atoi(v)
		case "master_link_down_since_seconds":
			st.LinkDownSinceSeconds = atoi(v)
		}
	}
	return st
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
