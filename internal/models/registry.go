package models

import "time"

// Operator is a registered company collaborator. The identity resolver
// checks this registry first: an operator phone/CPF must never fall through
// to the customer intake flow.
type Operator struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	FullName   string `gorm:"size:128;not null"`
	NationalID string `gorm:"size:14;uniqueIndex;not null"` // stored digits-only or formatted, both looked up
	Email      string `gorm:"size:128"`
	Phone      string `gorm:"size:20;index"`
	Sector     string `gorm:"size:64"`
	Role       string `gorm:"size:64"`
	Active     bool   `gorm:"default:true;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Operator) TableName() string { return "operators" }

// Customer is an end customer known to the system, created or updated when
// the data-collection pipeline completes.
type Customer struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Name       string `gorm:"size:128;not null"`
	NationalID string `gorm:"size:14;uniqueIndex;not null"`
	Email      string `gorm:"size:128"`
	Phone      string `gorm:"size:20;index"`
	BirthDate  string `gorm:"size:10"` // DD/MM/AAAA as confirmed by the customer
	Street     string `gorm:"size:128"`
	District   string `gorm:"size:64"`
	City       string `gorm:"size:64"`
	Region     string `gorm:"size:2"`
	PostalCode string `gorm:"size:8"`
	HouseNo    string `gorm:"size:16"`
	Complement string `gorm:"size:64"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Customer) TableName() string { return "customers" }
