package adminapi

type statusResponse struct {
	State             string `json:"state"`
	LastAttemptedView int32  `json:"lastAttemptedView"`
	LastInstalledView int32  `json:"lastInstalledView"`
	Leader            string `json:"leader,omitempty"`
	NodePriority      int32  `json:"nodePriority"`
	ClusterSize       int    `json:"clusterSize"`
}

type setPriorityRequest struct {
	Value int32 `json:"value"`
}
