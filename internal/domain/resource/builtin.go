// builtin.go — ресурсы консоли организации.
package resource

import (
	"net/http"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/apiclient"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
	p "github.com/sitfuturz/newAdminCircle-sub000/internal/projector"
)

// Имена ресурсов.
const (
	Chapters     = "chapters"
	Members      = "members"
	Referrals    = "referrals"
	Testimonials = "testimonials"
	TYFCB        = "tyfcb"
	Visitors     = "visitors"
	Badges       = "badges"
	Fees         = "fees"
	Complaints   = "complaints"
	Suggestions  = "suggestions"
	OneToOnes    = "one-to-ones"
)

// Пути к имени отделения, которые встречаются в документах backend.
var chapterFields = []string{"chapter_name", "chapter", "chapterId.chapterName", "chapter_id.chapterName"}

// dateRange — фильтры периода и поиска, общие для журналов активности.
var dateRange = []string{model.FilterSearch, model.FilterStartDate, model.FilterEndDate}

func chapterColumn() p.ColumnSpec {
	return p.ColumnSpec{Header: "Chapter", DataKey: "chapter", Source: "chapter_name",
		Alternates: []string{"chapter", "chapterId.chapterName", "chapter_id.chapterName"}}
}

func dateColumn(header, key, source string) p.ColumnSpec {
	return p.ColumnSpec{Header: header, DataKey: key, Source: source, Format: p.FormatDate}
}

// Builtin возвращает каталог ресурсов консоли.
func Builtin() *Catalog {
	c, err := NewCatalog(builtinResources()...)
	if err != nil {
		panic(err)
	}
	return c
}

func builtinResources() []Resource {
	return []Resource{
		{
			Name: Chapters, Title: "Chapters", FileNameBase: "chapters",
			Path: "/admin/chapters", Method: http.MethodGet, Envelope: apiclient.Data(),
			ChapterParam:  "chapterName",
			ChapterFields: []string{"chapterName", "name"},
			Filters:       []string{model.FilterSearch, model.FilterCategory, "city"},
			Columns: []p.ColumnSpec{
				{Header: "Chapter", DataKey: "chapter", Source: "chapterName", Alternates: []string{"name"}},
				{Header: "City", DataKey: "city", Source: "city.name", Alternates: []string{"city"}},
				{Header: "Category", DataKey: "category", Source: "category.name", Alternates: []string{"category"}},
				{Header: "Members", DataKey: "members", Source: "members", Format: p.FormatCount},
				{Header: "Meeting Day", DataKey: "meetingDay", Source: "meeting_day"},
				dateColumn("Created", "createdAt", "createdAt"),
			},
		},
		{
			Name: Members, Title: "Members List", FileNameBase: "members",
			Path: "/admin/users", Method: http.MethodGet, Envelope: apiclient.Data(),
			ChapterParam: "chapter", ChapterFields: chapterFields,
			Filters:       []string{model.FilterSearch, model.FilterStatus, model.FilterCategory},
			StatusOptions: []string{"active", "inactive"},
			Columns: []p.ColumnSpec{
				{Header: "Name", DataKey: "name"},
				{Header: "Email", DataKey: "email"},
				{Header: "Mobile", DataKey: "mobile_number", Alternates: []string{"mobile"}},
				chapterColumn(),
				{Header: "Business Category", DataKey: "category", Source: "business_category", Alternates: []string{"category.name"}},
				{Header: "Active", DataKey: "active", Source: "isActive", Format: p.FormatBool},
				dateColumn("Joined", "joined", "createdAt"),
			},
		},
		{
			Name: Referrals, Title: "Referrals Report", FileNameBase: "referrals",
			Path: "/admin/referrals/list", Method: http.MethodPost, Envelope: apiclient.Data(),
			ChapterParam: "chapter_name", ChapterFields: chapterFields,
			Filters:       append([]string{model.FilterStatus}, dateRange...),
			StatusOptions: []string{"pending", "accepted", "rejected", "completed"},
			Columns: []p.ColumnSpec{
				{Header: "Giver", DataKey: "giver", Source: "giver_id.name", Fallback: "Unknown"},
				{Header: "Receiver", DataKey: "receiver", Source: "receiver_id.name", Fallback: "External Referral"},
				chapterColumn(),
				{Header: "Referral Type", DataKey: "type", Source: "referral_type"},
				{Header: "Status", DataKey: "status"},
				{Header: "Contact", DataKey: "contact", Source: "mobile_number"},
				{Header: "Comments", DataKey: "comments"},
				dateColumn("Date", "date", "createdAt"),
			},
		},
		{
			Name: Testimonials, Title: "Testimonials Report", FileNameBase: "testimonials",
			Path: "/admin/testimonials", Method: http.MethodGet, Envelope: apiclient.Data(),
			ChapterParam: "chapter_name", ChapterFields: chapterFields,
			Filters: dateRange,
			Columns: []p.ColumnSpec{
				{Header: "Giver", DataKey: "giver", Source: "giverId.name", Alternates: []string{"giver_id.name"}, Fallback: "Unknown"},
				{Header: "Receiver", DataKey: "receiver", Source: "receiverId.name", Alternates: []string{"receiver_id.name"}, Fallback: "Unknown"},
				chapterColumn(),
				{Header: "Message", DataKey: "message"},
				dateColumn("Date", "date", "createdAt"),
			},
		},
		{
			Name: TYFCB, Title: "TYFCB Report", FileNameBase: "tyfcb",
			Path: "/admin/tyfcb", Method: http.MethodGet, Envelope: apiclient.Bare(),
			ChapterParam: "chapter_name", ChapterFields: chapterFields,
			Filters: append([]string{"business_type", "referral_type"}, dateRange...),
			Columns: []p.ColumnSpec{
				{Header: "Giver", DataKey: "giver", Source: "giverId.name", Alternates: []string{"giver_id.name"}, Fallback: "Unknown"},
				{Header: "Receiver", DataKey: "receiver", Source: "receiverId.name", Alternates: []string{"receiver_id.name"}, Fallback: "External Referral"},
				chapterColumn(),
				{Header: "Amount", DataKey: "amount", Source: "referral_amount", Alternates: []string{"amount"}, Format: p.FormatCurrency, CurrencyKey: "currency", Currency: "INR"},
				{Header: "Business Type", DataKey: "businessType", Source: "business_type"},
				{Header: "Referral Type", DataKey: "referralType", Source: "referral_type"},
				{Header: "Comments", DataKey: "comments"},
				dateColumn("Date", "date", "createdAt"),
			},
		},
		{
			Name: Visitors, Title: "Visitors Report", FileNameBase: "visitors",
			Path: "/admin/visitors", Method: http.MethodGet, Envelope: apiclient.Data(),
			ChapterParam: "chapter_name", ChapterFields: chapterFields,
			Filters:       append([]string{model.FilterStatus}, dateRange...),
			StatusOptions: []string{"present", "absent"},
			Columns: []p.ColumnSpec{
				{Header: "Name", DataKey: "name"},
				{Header: "Business", DataKey: "business", Source: "business_name"},
				{Header: "Mobile", DataKey: "mobile", Source: "mobile_number"},
				chapterColumn(),
				{Header: "Invited By", DataKey: "invitedBy", Source: "refUserId.name", Fallback: "Unknown"},
				{Header: "Status", DataKey: "status"},
				{Header: "Fees", DataKey: "fees", Source: "fees", Format: p.FormatCurrency, Currency: "INR"},
				dateColumn("Visit Date", "visitDate", "eventId.date"),
			},
		},
		{
			Name: Badges, Title: "Badges", FileNameBase: "badges",
			Path: "/admin/badges", Method: http.MethodGet, Envelope: apiclient.Bare(),
			Filters: []string{model.FilterSearch},
			Columns: []p.ColumnSpec{
				{Header: "Badge", DataKey: "name"},
				{Header: "Description", DataKey: "description"},
				{Header: "Holders", DataKey: "holders", Source: "users", Format: p.FormatCount},
				dateColumn("Created", "createdAt", "createdAt"),
			},
		},
		{
			Name: Fees, Title: "Fee Collection Report", FileNameBase: "fees",
			Path: "/admin/fees", Method: http.MethodGet, Envelope: apiclient.Data(),
			ChapterParam: "chapter_name", ChapterFields: chapterFields,
			Filters:       append([]string{model.FilterStatus}, dateRange...),
			StatusOptions: []string{"paid", "pending", "overdue"},
			Columns: []p.ColumnSpec{
				{Header: "Member", DataKey: "member", Source: "userId.name", Alternates: []string{"name"}, Fallback: "Unknown"},
				chapterColumn(),
				{Header: "Amount", DataKey: "amount", Format: p.FormatCurrency, CurrencyKey: "currency", Currency: "INR"},
				{Header: "Paid", DataKey: "paid", Source: "paid_amount", Format: p.FormatCurrency, CurrencyKey: "currency", Currency: "INR"},
				{Header: "Status", DataKey: "status"},
				dateColumn("Due Date", "dueDate", "due_date"),
			},
		},
		{
			Name: Complaints, Title: "Complaints", FileNameBase: "complaints",
			Path: "/admin/complaints", Method: http.MethodGet, Envelope: apiclient.Keyed("complaints"),
			ChapterParam: "chapter_name", ChapterFields: chapterFields,
			Filters:       append([]string{model.FilterStatus, model.FilterCategory}, dateRange...),
			StatusOptions: []string{"pending", "in_progress", "resolved"},
			Columns: []p.ColumnSpec{
				{Header: "Member", DataKey: "member", Source: "userId.name", Fallback: "Unknown"},
				chapterColumn(),
				{Header: "Category", DataKey: "category"},
				{Header: "Title", DataKey: "title"},
				{Header: "Details", DataKey: "details"},
				{Header: "Status", DataKey: "status"},
				dateColumn("Date", "date", "createdAt"),
			},
		},
		{
			Name: Suggestions, Title: "Suggestions", FileNameBase: "suggestions",
			Path: "/admin/suggestions", Method: http.MethodGet, Envelope: apiclient.Keyed("suggestions"),
			ChapterParam: "chapter_name", ChapterFields: chapterFields,
			Filters:       append([]string{model.FilterStatus, model.FilterCategory}, dateRange...),
			StatusOptions: []string{"pending", "reviewed", "implemented"},
			Columns: []p.ColumnSpec{
				{Header: "Member", DataKey: "member", Source: "userId.name", Fallback: "Unknown"},
				chapterColumn(),
				{Header: "Category", DataKey: "category"},
				{Header: "Suggestion", DataKey: "details"},
				{Header: "Status", DataKey: "status"},
				dateColumn("Date", "date", "createdAt"),
			},
		},
		{
			Name: OneToOnes, Title: "One To One Report", FileNameBase: "one_to_ones",
			Path: "/admin/one-to-ones/list", Method: http.MethodPost, Envelope: apiclient.Data(),
			ChapterParam: "chapter_name", ChapterFields: chapterFields,
			Filters:     dateRange,
			ExportLimit: 100000,
			Columns: []p.ColumnSpec{
				{Header: "Member One", DataKey: "memberOne", Source: "memberId1.name", Fallback: "Unknown"},
				{Header: "Member Two", DataKey: "memberTwo", Source: "memberId2.name", Fallback: "Unknown"},
				chapterColumn(),
				{Header: "Initiated By", DataKey: "initiatedBy", Source: "initiatedBy.name", Fallback: "Unknown"},
				{Header: "Location", DataKey: "location", Source: "meet_place"},
				{Header: "Topics", DataKey: "topics", Source: "topics"},
				dateColumn("Date", "date", "date"),
			},
		},
	}
}
