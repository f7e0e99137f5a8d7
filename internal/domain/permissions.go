package domain

// Row-level predicates shared by the REST handlers and the sync mutators.
// An empty uid is an anonymous caller and is never allowed anything.

func CanReadTodo(uid string, t *Todo) bool {
	return uid != "" && t != nil && t.UserID == uid
}

func CanMutateTodo(uid string, t *Todo) bool {
	return CanReadTodo(uid, t)
}

func CanReadUserPublic(uid string, _ *UserPublic) bool {
	return uid != ""
}

func CanMutateUserPublic(uid string, u *UserPublic) bool {
	return uid != "" && u != nil && u.ID == uid
}

func CanReadUserState(uid string, s *UserState) bool {
	return uid != "" && s != nil && s.UserID == uid
}

func CanMutateUserState(uid string, s *UserState) bool {
	return CanReadUserState(uid, s)
}
