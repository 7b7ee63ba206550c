package httpclient

// envelope is the response shape every collaborator speaks:
// {isSuccess, data, message, errors}.
type envelope[T any] struct {
	IsSuccess bool     `json:"isSuccess"`
	Data      *T       `json:"data"`
	Message   string   `json:"message"`
	Errors    []string `json:"errors"`
}
