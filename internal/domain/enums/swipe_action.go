package enums

type SwipeAction string

const (
	SwipeActionLike    SwipeAction = "like"
	SwipeActionDislike SwipeAction = "dislike"
)

func (a SwipeAction) Valid() bool {
	return a == SwipeActionLike || a == SwipeActionDislike
}
