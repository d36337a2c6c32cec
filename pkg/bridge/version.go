package bridge

// Version is the bridge release version, reported on the health endpoint
const Version = "1.2.0"
