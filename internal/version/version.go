package version

// Current is the released version, without a leading "v".
const Current = "0.1.0"

// UserAgent is sent on every request to the cluster.
func UserAgent() string {
	return "couch-xray/" + Current
}
