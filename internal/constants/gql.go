package constants

// GQLOperation is a persisted-query GraphQL call, matching the shape Twitch's
// own web client sends: an operation name plus a SHA-256 hash of the query
// text instead of the text itself.
type GQLOperation struct {
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	Extensions    GQLExtensions          `json:"extensions"`
}

type GQLExtensions struct {
	PersistedQuery GQLPersistedQuery `json:"persistedQuery"`
}

type GQLPersistedQuery struct {
	Version    int    `json:"version"`
	SHA256Hash string `json:"sha256Hash"`
}

func NewGQLOperation(name, hash string) GQLOperation {
	return GQLOperation{
		OperationName: name,
		Extensions: GQLExtensions{
			PersistedQuery: GQLPersistedQuery{
				Version:    1,
				SHA256Hash: hash,
			},
		},
	}
}

func (g GQLOperation) WithVariables(vars map[string]interface{}) GQLOperation {
	g.Variables = vars
	return g
}

var (
	GetIDFromLogin = NewGQLOperation(
		"GetIDFromLogin",
		"94e82a7b1e3c21e186daa73ee2afc4b8f23bade1fbbff6fe8ac133f50a2f58ca",
	)

	VideoPlayerStreamInfoOverlayChannel = NewGQLOperation(
		"VideoPlayerStreamInfoOverlayChannel",
		"a5f2e34d626a9f4f5c0204f910bab2194948a9502089be558bb6e779a9e1b3d2",
	)

	ChannelPointsContext = NewGQLOperation(
		"ChannelPointsContext",
		"1530a003a7d374b0380b79db0be0534f30ff46e61cffa2bc0e2468a909fbc024",
	)

	ClaimCommunityPoints = NewGQLOperation(
		"ClaimCommunityPoints",
		"46aaeebe02c99afdf4fc97c7c0cba964124bf6b0af229395f1f6d1feed05b3d0",
	)

	MakePrediction = NewGQLOperation(
		"MakePrediction",
		"b44682ecc88358817009f20e69d75081b1e58825bb40aa53d5dbadcc17c881d8",
	)

	PlaybackAccessToken = NewGQLOperation(
		"PlaybackAccessToken",
		"3093517e37e4f4cb48906155bcd894150aef92617939236d2508f3375ab732ce",
	)

	JoinRaid = NewGQLOperation(
		"JoinRaid",
		"c6a332a86d1087fbbb1a8623aa01bd1313d2386e7c63be60fdb2d1901f01a4ae",
	)

	FetchPrediction = NewGQLOperation(
		"ViewerPredictionsEvent",
		"6f9c6a6e7d4cde732d3f16178f61e680e38f6ff8a7613194ca2b5e4cb5f3f2ae",
	)
)
