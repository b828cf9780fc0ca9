package domain

import "errors"

var (
	ErrTopicNotFound    = errors.New("topic not found")
	ErrTopicPurged      = errors.New("topic is purged")
	ErrIdentityNotFound = errors.New("identity not found")
	ErrSlugTaken        = errors.New("slug already taken")
	ErrDuplicateVote    = errors.New("duplicate vote for topic and day")
)
