package auth

import "time"

func (svc *Service) SetNowFunc(fn func() time.Time) { svc.nowFunc = fn }
