package store

import (
	"time"

	"gorm.io/gorm"
)

type SortOrder int

const (
	Unsorted SortOrder = iota
	SortByID
	SortByCreatedTime
	SortByCreatedTimeDesc
	SortByUpdatedTime
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type ReportQueryFilter BaseQuerier

func NewReportQueryFilter() *ReportQueryFilter {
	return &ReportQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *ReportQueryFilter) ByStatus(status string) *ReportQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ?", status)
	})
	return qf
}

func (qf *ReportQueryFilter) CreatedBefore(t time.Time) *ReportQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("created_at < ?", t)
	})
	return qf
}

type ReportQueryOptions BaseQuerier

func NewReportQueryOptions() *ReportQueryOptions {
	return &ReportQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (o *ReportQueryOptions) WithSortOrder(sort SortOrder) *ReportQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		switch sort {
		case SortByID:
			return tx.Order("id")
		case SortByCreatedTime:
			return tx.Order("created_at")
		case SortByCreatedTimeDesc:
			return tx.Order("created_at DESC")
		case SortByUpdatedTime:
			return tx.Order("updated_at")
		default:
			return tx
		}
	})
	return o
}
