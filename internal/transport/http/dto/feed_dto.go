package dto

type RecommendationsResponse struct {
	Items []UserView `json:"items"`
}
