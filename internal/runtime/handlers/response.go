package handlers

// Reply marks values that are published as-is. Response implements it, and so
// does every struct that embeds Response.
type Reply interface {
	reply()
}

// Response is the standard reply shape. Endpoints with extra fields embed it.
type Response struct {
	Nonce   string `json:"nonce,omitempty"`
	Result  any    `json:"result,omitempty"`
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (Response) reply() {}

// OK is a successful reply carrying result.
func OK(nonce string, result any) Response {
	success := true
	return Response{Nonce: nonce, Result: result, Success: &success}
}

// Fail is an explicit business failure. Infrastructure errors never produce
// one; callers only see silence for those.
func Fail(nonce, message string) Response {
	success := false
	return Response{Nonce: nonce, Success: &success, Error: message}
}

// Fallback wraps values that are not a Reply.
type Fallback struct {
	Nonce     *string `json:"nonce"`
	Data      any     `json:"data"`
	ClusterID int     `json:"cluster_id"`
}

// Wrap returns data unchanged when it is a Reply and a Fallback otherwise.
func Wrap(nonce string, data any, clusterID int) any {
	if r, ok := data.(Reply); ok {
		return r
	}
	fb := Fallback{Data: data, ClusterID: clusterID}
	if nonce != "" {
		fb.Nonce = &nonce
	}
	return fb
}
