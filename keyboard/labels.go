package keyboard

// Control-button captions. These are matched byte-for-byte against inbound
// text, so they live in one place and double as the reserved-label set:
// an admin can never create a tree button carrying one of them.
const (
	LabelMainMenu     = "🔝 القائمة الرئيسية"
	LabelBack         = "🔙 رجوع"
	LabelSupervision  = "👑 الإشراف"
	LabelContactAdmin = "💬 التواصل مع الأدمن"

	LabelEditContent     = "📄 تعديل المحتوى"
	LabelStopEditContent = "🚫 إلغاء تعديل المحتوى"
	LabelAddMessage      = "➕ إضافة رسالة"

	LabelEditButtons     = "✏️ تعديل الأزرار"
	LabelStopEditButtons = "🚫 إلغاء تعديل الأزرار"
	LabelAddButton       = "➕ إضافة زر"

	LabelStats       = "📊 الإحصائيات"
	LabelBroadcast   = "🗣️ رسالة جماعية"
	LabelAlert       = "🔔 رسالة التنبيه"
	LabelEditAdmins  = "⚙️ تعديل المشرفين"
	LabelEditWelcome = "📝 تعديل رسالة الترحيب"
	LabelBannedList  = "🚫 قائمة المحظورين"

	LabelMoveButtons     = "✂️ نقل أزرار"
	LabelCopyButtons     = "📥 نسخ أزرار"
	LabelDynamicTransfer = "📥 نقل البيانات"
	LabelDefaultButtons  = "➕ أزرار افتراضية"

	LabelConfirmSelection = "✅ تأكيد الاختيار"
	LabelMoveHere         = "✅ النقل إلى هنا"
	LabelCopyHere         = "✅ النسخ إلى هنا"
	LabelCancel           = "❌ إلغاء"
	LabelCancelMove       = "❌ إلغاء النقل"
	LabelCancelOperation  = "❌ إلغاء العملية"

	LabelFinishTransfer      = "✅ إنهاء وإضافة الكل"
	LabelFinishBulk          = "✅ إنهاء الإضافة"
	LabelFinishBroadcast     = "✅ إنهاء الإضافة والبدء"
	LabelFinishAlert         = "✅ إنهاء إضافة رسائل التنبيه"
	LabelConfirmDefaultNames = "✅ تأكيد الأسماء والانتقال للاختيار"
	LabelAddToSelected       = "✅ إضافة للـ"

	// Prefix marking a selected button in multi-select wizards.
	SelectedPrefix = "✅ "

	// Typed confirmation word for destructive operations.
	ConfirmWord = "نعم"
)

var reserved = map[string]struct{}{
	LabelMainMenu:     {},
	LabelBack:         {},
	LabelSupervision:  {},
	LabelContactAdmin: {},

	LabelEditContent:     {},
	LabelStopEditContent: {},
	LabelAddMessage:      {},

	LabelEditButtons:     {},
	LabelStopEditButtons: {},
	LabelAddButton:       {},

	LabelStats:       {},
	LabelBroadcast:   {},
	LabelAlert:       {},
	LabelEditAdmins:  {},
	LabelEditWelcome: {},
	LabelBannedList:  {},

	LabelMoveButtons:     {},
	LabelCopyButtons:     {},
	LabelDynamicTransfer: {},
	LabelDefaultButtons:  {},

	LabelConfirmSelection: {},
	LabelMoveHere:         {},
	LabelCopyHere:         {},
	LabelCancel:           {},
	LabelCancelMove:       {},
	LabelCancelOperation:  {},

	LabelFinishTransfer:      {},
	LabelFinishBulk:          {},
	LabelFinishBroadcast:     {},
	LabelFinishAlert:         {},
	LabelConfirmDefaultNames: {},
}

// IsReserved reports whether name collides with a control-button caption.
func IsReserved(name string) bool {
	_, ok := reserved[name]
	return ok
}
